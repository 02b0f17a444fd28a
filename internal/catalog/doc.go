// Package catalog stores what each supported receiver model can do.
//
// A ReceiverModel owns a set of CommandDefinitions. Each definition is a
// request template: an endpoint, an HTTP method and a command string with
// {name} placeholders, plus ParameterSpecs describing the values that fill
// them. The executor reads the catalog; it never writes it.
//
// Catalog contents come from YAML documents (see Seed). The default
// documents are embedded in BuiltinFS.
package catalog
