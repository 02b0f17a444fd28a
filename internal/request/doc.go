// Package request holds the helpers shared by everything that talks to a
// receiver over HTTP: the ordered parameter list passed to command
// templates, {name} placeholder substitution, URL assembly, the HTTP method
// whitelist and the outbound transport.
//
// Template grammar: literal text with {name} placeholders. Substitution is
// plain, case-sensitive string replacement with no escaping for literal
// braces. Placeholders without a matching parameter are left in place.
//
//	suffix := request.Resolve("?MV{level}", request.Params{{Name: "level", Value: 40}})
//	// suffix == "?MV40"
//	url := request.BuildURL("http", "192.168.1.50", 80, "/goform/formiPhoneAppDirect.xml", suffix)
package request
