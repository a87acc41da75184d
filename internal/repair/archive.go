package repair

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"

	"substream/subtitleservice/internal/domain"
)

// maxMemberSize guards against decompression bombs inside hostile archives.
const maxMemberSize = 32 << 20

var (
	zipMagic  = []byte{0x50, 0x4b, 0x03, 0x04}
	rarMagic  = []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07}
	sevenzBit = []byte{0x37, 0x7a, 0xbc, 0xaf, 0x27, 0x1c}
	gzipMagic = []byte{0x1f, 0x8b}
)

// subtitle extensions in preference order; lower rank wins.
var extensionRank = map[string]int{
	".srt": 0,
	".sub": 1,
	".ssa": 2,
	".ass": 2,
	".vtt": 3,
	".txt": 4,
}

type archiveMember struct {
	name    string
	content []byte
}

// extractArchive unwraps container formats recognized by magic bytes and
// returns the most plausible subtitle member. Non-archive input is returned
// unchanged under its original name.
func extractArchive(raw []byte, name string) (archiveMember, error) {
	switch {
	case bytes.HasPrefix(raw, zipMagic):
		return pickMember(listZip(raw))
	case bytes.HasPrefix(raw, rarMagic):
		return pickMember(listRar(raw))
	case bytes.HasPrefix(raw, sevenzBit):
		return pickMember(listSevenZip(raw))
	case bytes.HasPrefix(raw, gzipMagic):
		return unwrapGzip(raw, name)
	default:
		return archiveMember{name: name, content: raw}, nil
	}
}

// pickMember chooses by extension rank, breaking ties on larger content.
// Members whose extension promises cues but whose body carries none are
// skipped as mislabeled.
func pickMember(members []archiveMember, err error) (archiveMember, error) {
	if err != nil {
		return archiveMember{}, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	best := -1
	bestRank := len(extensionRank) + 1
	for i, member := range members {
		ext := strings.ToLower(path.Ext(member.name))
		rank, ok := extensionRank[ext]
		if !ok {
			continue
		}
		// .srt and .vtt both promise "-->" timing lines; a member named
		// that way without them is mislabeled.
		if (ext == ".srt" || ext == ".vtt") && !hasCueSeparator(member.content) {
			continue
		}
		if rank < bestRank || (rank == bestRank && best >= 0 && len(member.content) > len(members[best].content)) {
			best = i
			bestRank = rank
		}
	}
	if best < 0 {
		return archiveMember{}, fmt.Errorf("%w: no subtitle member found", domain.ErrExtraction)
	}
	return members[best], nil
}

func hasCueSeparator(content []byte) bool {
	return bytes.Contains(content, []byte("-->"))
}

func listZip(raw []byte) ([]archiveMember, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}
	var members []archiveMember
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || file.UncompressedSize64 > maxMemberSize {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxMemberSize))
		rc.Close()
		if err != nil {
			continue
		}
		members = append(members, archiveMember{name: file.Name, content: content})
	}
	return members, nil
}

func listRar(raw []byte) ([]archiveMember, error) {
	reader, err := rardecode.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	var members []archiveMember
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return members, err
		}
		if header.IsDir {
			continue
		}
		content, err := io.ReadAll(io.LimitReader(reader, maxMemberSize))
		if err != nil {
			continue
		}
		members = append(members, archiveMember{name: header.Name, content: content})
	}
	return members, nil
}

func listSevenZip(raw []byte) ([]archiveMember, error) {
	reader, err := sevenzip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}
	var members []archiveMember
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || file.UncompressedSize > maxMemberSize {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxMemberSize))
		rc.Close()
		if err != nil {
			continue
		}
		members = append(members, archiveMember{name: file.Name, content: content})
	}
	return members, nil
}

func unwrapGzip(raw []byte, name string) (archiveMember, error) {
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return archiveMember{}, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	defer reader.Close()
	content, err := io.ReadAll(io.LimitReader(reader, maxMemberSize))
	if err != nil {
		return archiveMember{}, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	if reader.Name != "" {
		name = reader.Name
	} else {
		name = strings.TrimSuffix(name, ".gz")
	}
	return archiveMember{name: name, content: content}, nil
}
