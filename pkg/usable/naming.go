package usable

import (
	"unicode"
	"unicode/utf8"
)

// HookName derives the handle name of an endpoint:
// "use" + name with its first letter upper-cased + "Query" or "Mutation".
//
//	HookName("getUser", KindQuery)  // useGetUserQuery
//	HookName("login", KindMutation) // useLoginMutation
func HookName(name string, kind Kind) string {
	suffix := "Query"
	if kind == KindMutation {
		suffix = "Mutation"
	}
	return "use" + capitalizeFirstLetter(name) + suffix
}

func capitalizeFirstLetter(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
