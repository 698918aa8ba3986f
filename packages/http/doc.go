// Package http holds the upload core of imagic.
//
// It covers:
//   - URLBuilder for endpoint URLs with ordered, pre-encoded query parameters
//   - Part and MultipartEncoder for byte-exact multipart/form-data bodies
//   - UploadRequest, the asynchronous request handed to a queue
//   - RetryPolicy and the classification of transport failures
//   - Client, which performs a single exchange for a request
package http
