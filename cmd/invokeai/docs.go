package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           InvokeAI model service API
// @version         1.0
// @description     HTTP API for model config storage, workflows and the model residency cache.
//
// @contact.name   InvokeAI maintainers
// @contact.url    https://github.com/heyross/InvokeAI
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
