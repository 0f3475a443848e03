// Package storage publishes generated asset files and maps them to URLs.
//
// The default Local provider copies uploads into storage.dir under a
// project-scoped, uuid-suffixed name and returns a URL rooted at
// storage.public_base_url. Uploads are written to a temporary file and
// renamed into place so a reader never observes a partial asset.
package storage
