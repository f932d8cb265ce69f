// Package artifacts manages query result files. Results live under
// STORE_PATH/<request_id>/ on local disk; the full path is persisted verbatim
// on the request's download row. A URI builder maps a finished artifact to
// the address clients download it from, either the gateway's own /download
// route or an S3 object uploaded after compute.
package artifacts
