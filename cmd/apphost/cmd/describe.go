package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-apphost/pkg/appmodel"
)

// describeCmd represents the describe command
var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "List the resources of the application",
	RunE: func(cmd *cobra.Command, args []string) error {
		return describeApplication()
	},
}

func describeApplication() error {
	_, app, err := loadApplication(appmodel.OperationPublish, newLogger())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tIMAGE\tENDPOINTS\tDEPENDS ON")
	for _, r := range app.Resources() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name(), resourceType(r), image(r), endpoints(r), dependencies(r))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Connection strings:")
	for _, r := range app.Resources() {
		if cs, ok := r.(appmodel.ResourceWithConnectionString); ok {
			fmt.Printf("  %s: %s\n", r.Name(), cs.ConnectionStringExpression().ValueExpression())
		}
	}
	return nil
}

func resourceType(r appmodel.Resource) string {
	switch r.(type) {
	case *appmodel.ParameterResource:
		return "parameter"
	case appmodel.ResourceWithParent:
		return "database"
	}
	if appmodel.IsContainer(r) {
		return "container"
	}
	return "-"
}

func image(r appmodel.Resource) string {
	if img, ok := appmodel.LastAnnotation[*appmodel.ContainerImageAnnotation](r); ok {
		return img.Reference()
	}
	return "-"
}

func endpoints(r appmodel.Resource) string {
	var out []string
	for _, ep := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
		port := "auto"
		if ep.Port != 0 {
			port = fmt.Sprint(ep.Port)
		}
		out = append(out, fmt.Sprintf("%s %s->%d", ep.Name, port, ep.TargetPort))
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ", ")
}

func dependencies(r appmodel.Resource) string {
	set := make(map[string]bool)
	if c, ok := r.(appmodel.ResourceWithParent); ok {
		set[c.Parent().Name()] = true
	}
	for _, w := range appmodel.AnnotationsOf[*appmodel.WaitAnnotation](r) {
		set[w.Resource.Name()] = true
	}
	if len(set) == 0 {
		return "-"
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
