// Package common contains the logging setup and the configuration struct shared by
// the library and the command line interface.
//
// Logging is based on the logger package of dragonboat: every package obtains its
// logger with logger.GetLogger(name) and InitLoggers installs a custom factory that
// writes "LEVEL | package | message" lines.
package common
