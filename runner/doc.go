// Package runner adapts github.com/joeycumines/go-eventloop's Loop to the
// async.TaskRunner interface, making it the concrete collaborator that
// drives every Spawner in this module.
package runner
