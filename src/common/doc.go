// Package common contains small utilities shared across stablemesh packages:
// hex helpers, typed store errors, and a logrus adapter for tests.
package common
