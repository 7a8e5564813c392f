/*
Package dom provides feather declarations and the catalog that registers them.

A feather describes one kind of model: its properties, their types and formats, flags for
required and read-only values, defaults, and relations to other feathers. Feathers are usually
read from a JSON catalog document mapping feather names to declarations:

	{"Contact": {
		"inherits": "Object",
		"properties": {
			"firstName": {"type": "string", "isRequired": true},
			"address": {"type": {"relation": "Address", "properties": ["city"]}}
		}
	}}

A property type is either a scalar type name or a relation object. Relations are classified once
when the catalog is loaded into one of the kinds ToOne, ToMany or ChildOf. A relation declaring
childOf is the back reference of a child model and is materialized only through its parent. A
relation declaring parentOf is a to-many collection of child models. Any other relation is a
to-one nested model, optionally restricted to a subset of the related feather's properties.

Feathers may inherit from another feather in the same catalog. The inherited properties come
first, followed by the feather's own declarations, which override inherited properties of the
same key. Plural names default to the inflected name. Data paths use the spinal case resource
names derived from the singular and plural name.

Feathers can declare rules, boolean expressions over the model data that must hold for a model
to be valid. The rule package compiles them.
*/
package dom
