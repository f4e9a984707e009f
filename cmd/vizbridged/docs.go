package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           vizbridged API
// @version         1.0
// @description     HTTP API for the visual plugin bridge daemon.
//
// @contact.name   vizbridged maintainers
// @contact.url    https://github.com/your-org/vizbridged
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
