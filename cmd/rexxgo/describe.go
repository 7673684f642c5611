package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aledsdavies/rexxgo/runtime/interp"
	"github.com/aledsdavies/rexxgo/runtime/rexx"
	"github.com/spf13/cobra"
)

// newDescribeCmd builds `rexxgo describe [name]`, the metadata
// introspection surface SPEC_FULL.md §4.10 supplements back in from the
// original implementation's --list-functions/--describe CLI.
func newDescribeCmd() *cobra.Command {
	var module string
	var category string

	cmd := &cobra.Command{
		Use:   "describe [name]",
		Short: "Show metadata for a built-in function, or list every registered one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i := rexx.NewInterpreter()
			reg := i.MetadataRegistry()

			if len(args) == 1 {
				return describeOne(reg, args[0])
			}
			return listFunctions(reg, module, category)
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "List only functions registered under this REQUIRE module")
	cmd.Flags().StringVar(&category, "category", "", "List only functions registered under this category")
	return cmd
}

func describeOne(reg *interp.MetadataRegistry, name string) error {
	meta, ok := reg.Get(name)
	if !ok {
		return &usageError{
			Message: fmt.Sprintf("no metadata registered for %q", strings.ToUpper(name)),
			Hint:    "run `rexxgo describe` with no argument to list every registered name",
		}
	}
	fmt.Printf("%s\n", meta.Name)
	if meta.Module != "" {
		fmt.Printf("  module:      %s\n", meta.Module)
	}
	if meta.Category != "" {
		fmt.Printf("  category:    %s\n", meta.Category)
	}
	if meta.Description != "" {
		fmt.Printf("  description: %s\n", meta.Description)
	}
	if len(meta.Parameters) > 0 {
		fmt.Printf("  parameters:  %s\n", strings.Join(meta.Parameters, ", "))
	}
	if meta.Returns != "" {
		fmt.Printf("  returns:     %s\n", meta.Returns)
	}
	for _, ex := range meta.Examples {
		fmt.Printf("  example:     %s\n", ex)
	}
	return nil
}

func listFunctions(reg *interp.MetadataRegistry, module, category string) error {
	var metas []interp.FunctionMeta
	switch {
	case module != "":
		metas = reg.ByModule(module)
	case category != "":
		metas = reg.ByCategory(category)
	default:
		for _, name := range reg.Names() {
			if meta, ok := reg.Get(name); ok {
				metas = append(metas, meta)
			}
		}
	}
	sort.Slice(metas, func(a, b int) bool { return metas[a].Name < metas[b].Name })
	for _, meta := range metas {
		fmt.Println(meta.Name)
	}
	return nil
}
