// Command annotation-engine runs the annotation job worker and answers
// one-shot attribute queries from the command line.
//
//	annotation-engine serve -c config.yaml
//	annotation-engine query -c config.yaml --project 7 --kind localization --params params.json
//
// Every setting in the configuration file can be overridden with an
// ANNOTATION_ prefixed environment variable.
package main
