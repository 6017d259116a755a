// Package mysql persists transaction label history. It offers a real
// MySQL-backed repository plus a file-backed in-memory variant for
// local development, behind a shared LabelRepository interface.
package mysql
