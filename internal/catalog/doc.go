// Package catalog persists song records in SQLite and exposes the narrow
// write surface used by the generation runners and history import.
//
// The Store manages the database connection, schema initialization, status
// counts and the status transitions of the generation lifecycle. Runners only
// write status, job and conversion identifiers, URLs, file paths and sizes,
// resolved descriptors and notes; the user-owned title, genre, prompt and
// lyrics columns are set when a record is created and left alone afterwards
// (SyncDetails may fill them only while they are empty).
//
// Schema changes bump the version in schema.go; users move the database aside
// to adopt the new schema.
package catalog
