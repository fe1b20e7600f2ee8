// Package cache wraps the redis servers behind the job queue and the object
// cache: pattern purges of job-queue keys and object-cache invalidation.
package cache
