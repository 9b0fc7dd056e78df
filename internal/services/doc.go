// Package services hosts the external tool clients and the shared error
// taxonomy used to classify stage failures.
package services
