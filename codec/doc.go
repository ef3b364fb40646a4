/*
Package codec turns records of an abstract type into self-describing envelopes:

	{"type": "service/regex-match", "properties": {"id": 3, "name": "..."}}

The store only keeps bytes, so without the tag there is no way to know which
concrete variant to rebuild. Tags are plain data registered explicitly on a
Codec; nothing is derived from Go type names.
*/
package codec
