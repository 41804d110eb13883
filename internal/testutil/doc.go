// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing messages and asserting bus
// behaviors. These helpers are intentionally minimal and avoid adding
// third-party dependencies. They are not intended for production usage.
package testutil
