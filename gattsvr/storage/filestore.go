/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package storage keeps upgrade images in a directory standing in for the
// device's secondary flash slot.
package storage

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/joaojeronimo/go-crc16"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/battota/gattsvr/svrutil"
)

const (
	FILE_TMP     = "image.tmp"
	FILE_PENDING = "image.pending"
	FILE_ACTIVE  = "image.active"
	FILE_META    = "image.meta"
)

// Validation reads the image in blocks of this size, checking for
// cancellation between blocks.
const VALIDATE_BLOCK_SZ = 4096

type ImageState string

const (
	IMAGE_STATE_NONE    ImageState = ""
	IMAGE_STATE_PENDING ImageState = "pending"
	IMAGE_STATE_ACTIVE  ImageState = "active"
)

// Meta describes the most recently installed image.
type Meta struct {
	Size  int        `codec:"size"`
	Crc   uint16     `codec:"crc"`
	State ImageState `codec:"state"`
}

type FileStore struct {
	dir string

	mtx  sync.Mutex
	tmp  *os.File
	size int
	crc  uint16
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "image directory %s", dir)
	}

	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) Dir() string {
	return fs.dir
}

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.dir, name)
}

func (fs *FileStore) Begin() error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	if fs.tmp != nil {
		fs.closeTmpNoLock(true)
	}

	f, err := os.OpenFile(fs.path(FILE_TMP),
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "open %s", FILE_TMP)
	}

	fs.tmp = f
	fs.size = 0
	fs.crc = 0

	log.Debugf("Image transfer opened in %s", fs.dir)
	return nil
}

func (fs *FileStore) WriteChunk(ctx context.Context, off int,
	data []byte) error {

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "chunk write")
	}

	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	if fs.tmp == nil {
		return errors.New("no image transfer in progress")
	}

	if _, err := fs.tmp.WriteAt(data, int64(off)); err != nil {
		return errors.Wrapf(err, "write %d bytes at offset %d", len(data), off)
	}

	if end := off + len(data); end > fs.size {
		fs.size = end
	}
	return nil
}

// Validate checks that the received image has the expected size and, when
// crc is supplied, the expected CRC-16.
func (fs *FileStore) Validate(ctx context.Context, size int,
	crc *uint16) error {

	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	if fs.tmp == nil {
		return errors.New("no image transfer in progress")
	}

	if err := fs.tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync image")
	}

	fi, err := fs.tmp.Stat()
	if err != nil {
		return errors.Wrap(err, "stat image")
	}
	if int(fi.Size()) != size {
		return errors.Errorf("image is %d bytes; expected %d", fi.Size(), size)
	}

	img := make([]byte, 0, size)
	block := make([]byte, VALIDATE_BLOCK_SZ)
	for off := int64(0); off < int64(size); {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "validation")
		}

		n, err := fs.tmp.ReadAt(block, off)
		img = append(img, block[:n]...)
		off += int64(n)

		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read image")
		}
	}

	fs.crc = crc16.Crc16(img)
	if crc != nil && *crc != fs.crc {
		return errors.Errorf("crc mismatch: image=0x%04x expected=0x%04x",
			fs.crc, *crc)
	}

	log.Debugf("Image validated: size=%d crc=0x%04x", size, fs.crc)
	return nil
}

func (fs *FileStore) closeTmpNoLock(remove bool) {
	if err := fs.tmp.Close(); err != nil {
		log.Debugf("close %s: %s", FILE_TMP, err.Error())
	}
	fs.tmp = nil

	if remove {
		if err := os.Remove(fs.path(FILE_TMP)); err != nil &&
			!os.IsNotExist(err) {

			log.Debugf("remove %s: %s", FILE_TMP, err.Error())
		}
	}
}

// Finish installs the received image as pending.  It is promoted to active
// by MarkValidated after the next boot.
func (fs *FileStore) Finish() error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	if fs.tmp == nil {
		return errors.New("no image transfer in progress")
	}
	fs.closeTmpNoLock(false)

	if err := os.Rename(fs.path(FILE_TMP),
		fs.path(FILE_PENDING)); err != nil {

		return errors.Wrap(err, "install pending image")
	}

	meta := Meta{
		Size:  fs.size,
		Crc:   fs.crc,
		State: IMAGE_STATE_PENDING,
	}
	if err := fs.writeMeta(meta); err != nil {
		return err
	}

	log.Infof("Image pending: size=%d crc=0x%04x", meta.Size, meta.Crc)
	return nil
}

func (fs *FileStore) Discard() error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	if fs.tmp == nil {
		return nil
	}

	fs.closeTmpNoLock(true)
	log.Debugf("Partial image discarded")
	return nil
}

// MarkValidated confirms a pending image once the device has booted it.
func (fs *FileStore) MarkValidated() error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	meta, err := fs.readMeta()
	if err != nil {
		return err
	}
	if meta.State != IMAGE_STATE_PENDING {
		return nil
	}

	if err := os.Rename(fs.path(FILE_PENDING),
		fs.path(FILE_ACTIVE)); err != nil {

		return errors.Wrap(err, "activate pending image")
	}

	meta.State = IMAGE_STATE_ACTIVE
	if err := fs.writeMeta(meta); err != nil {
		return err
	}

	log.Infof("Image marked valid: size=%d crc=0x%04x", meta.Size, meta.Crc)
	return nil
}

// Info reports the most recently installed image.  A store without one
// yields a zero Meta.
func (fs *FileStore) Info() (Meta, error) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	return fs.readMeta()
}

func (fs *FileStore) readMeta() (Meta, error) {
	var meta Meta

	b, err := ioutil.ReadFile(fs.path(FILE_META))
	if err != nil {
		if os.IsNotExist(err) {
			return meta, nil
		}
		return meta, errors.Wrap(err, "read image metadata")
	}

	if err := svrutil.DecodeCbor(b, &meta); err != nil {
		return meta, errors.Wrap(err, "image metadata")
	}
	return meta, nil
}

func (fs *FileStore) writeMeta(meta Meta) error {
	b, err := svrutil.EncodeCbor(meta)
	if err != nil {
		return errors.Wrap(err, "image metadata")
	}

	if err := ioutil.WriteFile(fs.path(FILE_META), b, 0644); err != nil {
		return errors.Wrap(err, "write image metadata")
	}
	return nil
}

// ImageCrc computes the CRC-16 a peer supplies with the verify command.
func ImageCrc(path string) (uint16, int, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "read image %s", path)
	}

	return crc16.Crc16(b), len(b), nil
}
