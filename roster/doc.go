// Package roster provides the course_roster query function: the list of
// students enrolled in a course, read from per-course YAML or JSON files
// or generated synthetically for demos and load tests.
package roster
