package link

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Kind returns the root definition kind of op: query, mutation or
// subscription. With several operations in the document OperationName picks
// one; otherwise the first is used. Unparseable documents report "query" so
// they reach the HTTP endpoint, which returns the syntax error.
func (op *Operation) Kind() string {
	doc, err := parser.ParseQuery(&ast.Source{Input: op.Query})
	if err != nil || doc == nil || len(doc.Operations) == 0 {
		return string(ast.Query)
	}

	def := doc.Operations[0]
	if op.OperationName != "" {
		if named := doc.Operations.ForName(op.OperationName); named != nil {
			def = named
		}
	}
	if def.Operation == "" {
		return string(ast.Query)
	}
	return string(def.Operation)
}

// IsSubscription reports whether op's root definition is a subscription
func IsSubscription(op *Operation) bool {
	return op.Kind() == string(ast.Subscription)
}

// Split routes each operation to left when test holds, else to right. The
// test runs per operation.
func Split(test func(*Operation) bool, left, right Handler) Handler {
	return HandlerFunc(func(ctx context.Context, op *Operation) <-chan Result {
		if test(op) {
			return left.Execute(ctx, op)
		}
		return right.Execute(ctx, op)
	})
}
