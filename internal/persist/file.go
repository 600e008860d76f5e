// Package persist implements a checksummed on-disk document envelope
// (signature plus crc32, no version field), grounded on aistore's
// cmn/jsp package (cmn/jsp/file.go): write to a temp file, flush,
// atomically rename. Nothing else in the module calls Save or Load:
// cmn.LoadConfig reads the configuration file as plain JSON, and export
// lists are not written to disk.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package persist

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const signature = "exanodes"

// envelope is [8B signature][4B crc32][payload].
func Save(path string, v interface{}) (err error) {
	tmp := path + ".tmp"
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()
	if _, err = f.WriteString(signature); err != nil {
		return err
	}
	crc := crc32.ChecksumIEEE(payload)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	if _, err = f.Write(crcBuf[:]); err != nil {
		return err
	}
	if _, err = f.Write(payload); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func Load(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(b) < len(signature)+4 {
		return fmt.Errorf("%s: truncated document", path)
	}
	if string(b[:len(signature)]) != signature {
		return fmt.Errorf("%s: bad signature", path)
	}
	crcWant := binary.BigEndian.Uint32(b[len(signature) : len(signature)+4])
	payload := b[len(signature)+4:]
	if crc32.ChecksumIEEE(payload) != crcWant {
		return fmt.Errorf("%s: checksum mismatch", path)
	}
	return json.Unmarshal(payload, v)
}

// MarshalRoundTrip serialises v and immediately re-parses it into a
// fresh value of the same type, for the §8 round-trip property test
// helper (export-list document).
func MarshalRoundTrip(v interface{}, out interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
