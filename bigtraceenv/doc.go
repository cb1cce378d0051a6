// Package bigtraceenv supplies the Environment collaborator a Worker reads
// trace bytes through: an opaque chunked byte source per spec, here given a
// concrete local-filesystem implementation.
package bigtraceenv
