// Package envfile reads environment description files and extracts the
// addresses of the hosts they describe.
//
// An environment file is free text. Any line carrying an "IP:" marker
// contributes one address, taken from the text after the marker up to the
// end of the line:
//
//	manager IP: 10.0.0.5
//	worker public IP: 54.1.2.3
//
// Addresses starting with the private prefix (default "10.0") are private;
// all others are public. The package also derives the default hostname
// prefix from the environment file's name ("docker-1.txt" -> "docker").
package envfile
