// Package encviewfs provides read-only encrypted views of a directory tree
// for the AbsFs filesystem abstraction. Nothing is ever written: names,
// contents and sizes are transformed on every read.
//
// # Overview
//
// An encrypted view (NewEncryptedView) shows a plaintext tree with encrypted
// names, encrypted contents and the matching sizes. It is meant to be handed
// to a backup or sync tool that should only ever see ciphertext. A decrypted
// view (NewDecryptedView) does the reverse for a tree of such ciphertext,
// e.g. one restored from a backup.
//
// # On-disk format
//
// Every key is SHA-256(keyAddition || secret), used with AES-256 on
// independent 16 byte blocks, so any block can be processed without its
// neighbours. This is what makes random access cheap. It also means equal
// plaintext blocks under one key give equal ciphertext blocks and that
// nothing is authenticated; the format is kept for compatibility with
// existing trees.
//
// An encrypted file is
//
//	[16 byte key addition][PKCS#7 padded ciphertext]
//
// where the key addition is SHA-256(salt)[:16] and the default salt is the
// modification time in unix seconds followed by the base name. Padding
// always adds at least one byte, so a plaintext of s bytes becomes
// 16 + (s/16 + 1)*16 bytes.
//
// An encrypted name is the url-safe base64 encoding, with padding, of
//
//	[8 byte key addition][PKCS#7 padded ciphertext of the name]
//
// where the key addition is SHA-256(name)[:8]. Equal names encrypt to equal
// names, which keeps listings stable across mounts.
//
// # Split files
//
// With a segment size configured, an encrypted view shows a file whose
// encrypted form is larger as the parts name.0, name.1, ... of at most that
// size. A decrypted view joins such parts back together, and also accepts a
// bare name as the first part.
//
// # Basic Usage
//
//	root, err := encviewfs.NewOSRoot("/home/me/photos")
//	if err != nil {
//	    panic(err)
//	}
//
//	view, err := encviewfs.NewEncryptedView(root, &encviewfs.Config{
//	    Secret:      encviewfs.NewFileSecretProvider("/home/me/.photos-secret"),
//	    SegmentSize: 1 << 30,
//	})
//	if err != nil {
//	    panic(err)
//	}
//	defer view.Close()
//
//	names, _ := view.Readdir("/")
//	r, _ := encviewfs.OpenViewReader(view, "/"+names[0])
//	defer r.Close()
//	io.Copy(os.Stdout, r)
//
// The mount package serves a View over FUSE, and cmd/encviewfs wraps both in
// a command line tool.
//
// # Thread Safety
//
// Views, codecs and virtual files are safe for concurrent use. Releasing a
// handle while a read on it is in flight is a caller error.
package encviewfs
