// Package minio stores the phase logs of algorithm runs and the archives
// built by the packager in an S3 compatible bucket.
package minio
