package local

import "fmt"

func errQueryableExists(keyExpr string) error {
	return fmt.Errorf("local: queryable already declared at %s", keyExpr)
}

func errNoMatchingQueryable(keyExpr string) error {
	return fmt.Errorf("local: no queryable matching %s", keyExpr)
}
