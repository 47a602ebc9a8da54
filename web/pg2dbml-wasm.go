//go:build js && wasm

// Light wasm wrapper around the dump conversion entrypoint.
// You don't need to include this in your website.
package main

import (
	"syscall/js"

	"github.com/pg2dbml/pg2dbml"
)

func convert(this js.Value, args []js.Value) interface{} {
	dump := args[0].String()
	callback := args[1]

	res := pg2dbml.Convert(dump, pg2dbml.Options{FixSyntax: true})
	callback.Invoke(js.Null(), res.DBML, res.Report.Markdown())
	return true
}

func main() {
	c := make(chan bool)
	js.Global().Set("_PG2DBML", js.FuncOf(convert))
	<-c
}
