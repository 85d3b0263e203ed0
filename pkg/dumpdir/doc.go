// Package dumpdir stores problem reports as directories of small files.
//
// # Layout
//
// A problem directory holds one file per element, named after the element:
//
//	ccpp-2024-03-05-10:20:30.123456-4242/
//	├── .lock          symlink to the pid of the locking process
//	├── .libreport/    engine metadata (logical owner)
//	├── time           creation time, seconds since the epoch
//	├── type           problem type, e.g. "CCpp"
//	├── uid            uid of the user the problem belongs to
//	└── ...            any other element
//
// Element files are plain data. Producers and consumers in other languages
// interoperate through nothing but this layout and the lock protocol.
//
// # Concurrency
//
// Every mutating operation needs the directory lock. Open waits for it
// (or fails fast with DontWaitForLock), Create takes it before the
// directory has any content, and Close releases it. A Dir handle is owned
// by one goroutine; different handles may be used concurrently, also
// across processes.
//
// # Errors
//
// Operations return *errors.StoreError values from the dumpdir/errors
// package. Use its Is*Error helpers or CodeOf to branch on the kind.
package dumpdir
