// Package main provides the entry point for the tag-weaver crawler.
//
// Usage:
//
//	tag-weaver crawl [page-size]
//	tag-weaver version
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	os.Exit(Execute(os.Args[1:]))
}
