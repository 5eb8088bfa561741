// Package stories implements the backlog: stories, their sub-tasks and the
// append-only documentation log attached to each story.
//
// Every operation is scoped to a project. A story fetched with the wrong
// project is reported as not found, never leaked across projects.
package stories
