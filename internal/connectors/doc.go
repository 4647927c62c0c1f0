// Package connectors wires the Source implementations into a registry.
//
// Each subpackage implements one family of Sources together with its
// Handles and Resources: root Sources that reach a storage system
// (filesystem, smb, smbc, web, googledrive, gmail, dropbox, data) and
// derived Sources that reinterpret a file as a container (zip, mail, pdf,
// libreoffice, spreadsheet). Every subpackage exposes a Register function;
// RegisterDefaults calls them all at startup.
package connectors
