// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing agents and observing runs. They are
// not intended for production usage.
package testutil
