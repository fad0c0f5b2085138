// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rendertree

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wavetermdev/htmltoken"
)

// builds a Node Store from an HTML template.  <component id="N"/> becomes a
// Component node, on* attributes become event handler attributes.

const ComponentTag = "component"

var voidElems = map[string]bool{
	"area": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

func isWsChar(char rune) bool {
	return char == ' ' || char == '\t' || char == '\n' || char == '\r'
}

func isAllWhitespace(s string) bool {
	for _, char := range s {
		if !isWsChar(char) {
			return false
		}
	}
	return true
}

// drop whitespace-only lines and the indentation around tags
func processWhitespace(htmlStr string) string {
	lines := strings.Split(htmlStr, "\n")
	var newLines []string
	for _, line := range lines {
		if isAllWhitespace(line) {
			continue
		}
		trimmed := strings.TrimLeftFunc(line, isWsChar)
		if !strings.HasPrefix(trimmed, "<") {
			trimmed = line
		}
		if strings.HasSuffix(strings.TrimRightFunc(trimmed, isWsChar), ">") {
			trimmed = strings.TrimRightFunc(trimmed, isWsChar)
		} else {
			trimmed += "\n"
		}
		newLines = append(newLines, trimmed)
	}
	return strings.Join(newLines, "")
}

func processTextStr(s string) string {
	if s == "" {
		return ""
	}
	if isAllWhitespace(s) {
		return " "
	}
	return strings.TrimSpace(s)
}

func addTokenAttrs(b *Builder, token htmltoken.Token) {
	for _, attr := range token.Attr {
		if attr.Key == "" {
			continue
		}
		if IsHandlerAttrName(attr.Key) {
			b.AddEventHandler(attr.Key)
			continue
		}
		b.AddAttribute(attr.Key, attr.Val)
	}
}

func addComponentToken(b *Builder, token htmltoken.Token) error {
	for _, attr := range token.Attr {
		if attr.Key != "id" {
			continue
		}
		componentId, err := strconv.Atoi(attr.Val)
		if err != nil {
			return fmt.Errorf("component id %q: %w", attr.Val, err)
		}
		b.AddComponent(componentId)
		return nil
	}
	return errors.New("component tag requires an id attribute")
}

// FromHTML tokenizes htmlStr into a Node Store. Mismatched tags are errors.
func FromHTML(htmlStr string) (*NodeStore, error) {
	htmlStr = processWhitespace(htmlStr)
	iter := htmltoken.NewTokenizer(strings.NewReader(htmlStr))
	b := MakeBuilder()
	inComponent := false
	for {
		tokenType := iter.Next()
		token := iter.Token()
		switch tokenType {
		case htmltoken.StartTagToken:
			if token.Data == ComponentTag {
				if err := addComponentToken(b, token); err != nil {
					return nil, err
				}
				inComponent = true
				continue
			}
			if inComponent {
				return nil, errors.New("component tag cannot have children")
			}
			b.OpenElement(token.Data)
			addTokenAttrs(b, token)
			if voidElems[token.Data] {
				b.CloseElement()
			}
		case htmltoken.EndTagToken:
			if token.Data == ComponentTag {
				if !inComponent {
					return nil, errors.New("end tag \"component\" without start tag")
				}
				inComponent = false
				continue
			}
			if voidElems[token.Data] {
				continue
			}
			if b.Depth() == 0 {
				return nil, fmt.Errorf("end tag %q without start tag", token.Data)
			}
			if b.CurrentTag() != token.Data {
				return nil, fmt.Errorf("end tag %q does not match start tag %q", token.Data, b.CurrentTag())
			}
			b.CloseElement()
		case htmltoken.SelfClosingTagToken:
			if token.Data == ComponentTag {
				if err := addComponentToken(b, token); err != nil {
					return nil, err
				}
				continue
			}
			b.OpenElement(token.Data)
			addTokenAttrs(b, token)
			b.CloseElement()
		case htmltoken.TextToken:
			textStr := processTextStr(token.Data)
			if textStr == "" || inComponent {
				continue
			}
			b.AddText(textStr)
		case htmltoken.CommentToken:
			continue
		case htmltoken.DoctypeToken:
			return nil, errors.New("doctype not supported")
		case htmltoken.ErrorToken:
			if iter.Err() == io.EOF {
				return b.Build()
			}
			return nil, iter.Err()
		}
	}
}
