package main

// General API documentation for swaggo. Generate with `swag init -g cmd/elementd/docs.go -o docs`.
//
// @title           elementd API
// @version         1.0
// @description     Element catalogue, content negotiation and element event queue.
//
// @contact.name   elementd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
