// Package appmodel is the application model of the app host: named resources
// carrying annotations, deferred values (parameters, endpoint references and
// connection-string expressions) and a fluent builder that hosting packages
// extend.
//
// A model is built once and then either run by the orchestrator or rendered to
// a manifest:
//
//	b := appmodel.NewBuilder(appmodel.BuilderOptions{AppName: "shop"})
//	pg := opengauss.AddOpenGauss(b, "gauss")
//	db := pg.AddDatabase("orders", "")
//	b.AddContainer("api", "example/api", "latest").WithReference(db.Resource()).WaitFor(db.Resource())
//	app, err := b.Build()
//
// Endpoint values depend on where they are read from. On the host network
// they resolve to the allocated loopback address and host port; under a
// context from WithContainerNetwork they resolve to the container name and
// target port.
package appmodel
