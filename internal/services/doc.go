// Package services carries cross-cutting helpers shared by roost
// components: the error taxonomy used to classify handler and federation
// failures, and context annotation for correlation of log output.
package services
