package main

// General API documentation for swaggo. Regenerate with `swag init -g cmd/medqa/docs.go`.
//
// @title           medqa API
// @version         1.0
// @description     Offline clinical question answering over local guideline passages.
//
// @contact.name   medqa maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
