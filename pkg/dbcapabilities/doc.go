// Package dbcapabilities provides a shared registry describing the database
// containers the app host knows how to run: default images, ports, accounts,
// system databases and mount paths. Hosting packages, health checks and the CLI
// import it so that defaults live in one place.
//
// Minimal usage example:
//
//	import "github.com/redbco/redb-apphost/pkg/dbcapabilities"
//
//	func defaultPort(kind string) int {
//	    id, ok := dbcapabilities.ParseID(kind) // "gauss", "dameng", "mongo", ...
//	    if !ok {
//	        return 0
//	    }
//	    return dbcapabilities.MustGet(id).DefaultPort
//	}
//
// Connection strings produced by the hosting packages can be parsed back with
// ParseConnectionString, which understands both the keyword form
// ("Host=h;Port=p;Username=u;Password=pw;Database=db") and URIs
// ("mongodb://u:pw@h:p/db?authSource=admin").
package dbcapabilities
