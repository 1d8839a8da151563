// Package driveops turns local change intents into OneDrive operations.
//
// The Uploader is the core: for one file it decides whether an upload is
// needed (hash and modification-time comparison), opens a resumable upload
// session, partitions the file into 320 KiB-aligned chunks and PUTs them
// strictly in order. Each upload runs as an UploadTask that publishes an
// ordered stream of ActionRecords and can be cancelled cooperatively at
// chunk boundaries.
//
// Operations wraps the Uploader together with the single-shot calls the
// dispatcher needs (folder create, move, remove), all reporting through
// the same ActionRecord stream.
package driveops
