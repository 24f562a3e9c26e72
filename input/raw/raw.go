// Package raw reads files holding one or more raw HTTP responses, as produced by
// proxies or `curl -i`.
package raw

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
	"github.com/Abhaythakor/fingerprintweb/util/rawhttp"
)

// ContainsHeaderLine reports whether the first block after the first line looks like headers.
func ContainsHeaderLine(data []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() {
		return false
	}
	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 {
			return false
		}
		if bytes.Contains(line, []byte(":")) {
			return true
		}
	}
	return false
}

// IsRawHTTPContent reports whether data looks like a response dump. Files that also carry a
// request line belong to katana.
func IsRawHTTPContent(data []byte) bool {
	s := string(data)
	if !strings.HasPrefix(strings.TrimSpace(s), "HTTP/") {
		return false
	}
	if strings.Contains(s, "GET ") || strings.Contains(s, "POST ") {
		return false
	}
	return ContainsHeaderLine(data)
}

// ParseRawHTTP parses every response in the file at path.
func ParseRawHTTP(path string) ([]*model.RawResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw http file %s: %w", path, err)
	}
	defer file.Close()
	return Parse(file, path)
}

// Parse reads responses from r. A response without an X-Url or Host header is keyed by
// file://<source>, with a #n suffix when the source holds more than one.
func Parse(r io.Reader, source string) ([]*model.RawResponse, error) {
	blocks, err := splitHTTPResponses(r)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}

	var out []*model.RawResponse
	for i, block := range blocks {
		resp := parseSingleHTTPResponse(block)
		if resp.URL == "" {
			resp.URL = "file://" + filepath.ToSlash(abs)
			if len(blocks) > 1 {
				resp.URL += fmt.Sprintf("#%d", i+1)
			}
		}
		util.Debug("Parsed raw response %d from %s as %s (status %d)", i+1, source, resp.URL, resp.Status)
		out = append(out, resp)
	}
	return out, nil
}

// splitHTTPResponses cuts the stream at every line starting with "HTTP/".
func splitHTTPResponses(r io.Reader) ([][]byte, error) {
	reader := bufio.NewReaderSize(r, 1024*1024)

	var blocks [][]byte
	var current bytes.Buffer
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read raw http input: %w", err)
		}
		if bytes.HasPrefix(line, []byte("HTTP/")) && current.Len() > 0 {
			blocks = append(blocks, bytes.Clone(current.Bytes()))
			current.Reset()
		}
		current.Write(line)
		if err == io.EOF {
			break
		}
	}
	if current.Len() > 0 && len(bytes.TrimSpace(current.Bytes())) > 0 {
		blocks = append(blocks, bytes.Clone(current.Bytes()))
	}
	return blocks, nil
}

func parseSingleHTTPResponse(block []byte) *model.RawResponse {
	head, body := splitHeadBody(block)
	status, header := rawhttp.ParseHeaders(bytes.NewReader(head))
	if status == 0 {
		status = 200
	}
	return &model.RawResponse{
		URL:    rawhttp.URLFromHeaders(header),
		Status: status,
		Header: header,
		Body:   body,
	}
}

// splitHeadBody splits at the first blank line, accepting both CRLF and LF framing.
func splitHeadBody(block []byte) ([]byte, []byte) {
	crlf := bytes.Index(block, []byte("\r\n\r\n"))
	lf := bytes.Index(block, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return block[:crlf], block[crlf+4:]
	case lf >= 0:
		return block[:lf], block[lf+2:]
	default:
		return block, nil
	}
}
