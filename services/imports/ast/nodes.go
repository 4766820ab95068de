// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

// JavaScript Tree-sitter Node Types
//
// The analyzer walks nodes directly rather than using tree-sitter queries so
// that byte offsets of punctuation (commas, braces, keywords) stay available.
//
// Reference: https://github.com/tree-sitter/tree-sitter-javascript
const (
	nodeComment  = "comment"
	nodeHashBang = "hash_bang_line"

	nodeImportStatement = "import_statement"
	nodeImportClause    = "import_clause"
	nodeNamespaceImport = "namespace_import"
	nodeNamedImports    = "named_imports"
	nodeImportSpecifier = "import_specifier"
	nodeImport          = "import"

	nodeLexicalDeclaration  = "lexical_declaration"
	nodeVariableDeclaration = "variable_declaration"
	nodeVariableDeclarator  = "variable_declarator"
	nodeExpressionStatement = "expression_statement"

	nodeCallExpression = "call_expression"
	nodeIdentifier     = "identifier"
	nodeString         = "string"

	fieldSource    = "source"
	fieldName      = "name"
	fieldAlias     = "alias"
	fieldFunction  = "function"
	fieldArguments = "arguments"

	requireIdent = "require"
)

// JavaScript AST Structure Reference
//
// program
// ├── import_statement
// │   ├── import
// │   ├── import_clause?
// │   │   ├── identifier                 // default binding
// │   │   ├── namespace_import           // * as ns
// │   │   │   ├── *
// │   │   │   ├── as
// │   │   │   └── identifier
// │   │   └── named_imports              // { a, b as c }
// │   │       └── import_specifier+
// │   │           ├── name: identifier | string
// │   │           └── alias: identifier?
// │   ├── from?
// │   └── source: string
// │
// ├── lexical_declaration | variable_declaration
// │   ├── const | let | var
// │   └── variable_declarator
// │       ├── name: identifier | pattern
// │       └── value: expression          // searched for call_expression
// │
// └── expression_statement
//     └── expression                     // searched for call_expression
//
// call_expression
// ├── function: import | identifier("require")
// └── arguments
//     └── string | template_string | expression
