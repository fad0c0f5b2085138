// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package wslink

import (
	"encoding/json"
	"fmt"

	"github.com/wavetermdev/wavedom/pkg/treeconsumer"
	"github.com/wavetermdev/wavedom/pkg/util/utilfn"
)

// inbound control messages (text frames). binary frames are always batches.
const (
	WSCommand_Ping       = "ping"
	WSCommand_Pong       = "pong"
	WSCommand_AttachRoot = "attachroot"
	WSCommand_Detach     = "detach"
	WSCommand_Reset      = "reset"
	WSCommand_Dispatch   = "dispatch"
)

// outbound message types
const (
	WSMessage_Hello         = "hello"
	WSMessage_Event         = "event"
	WSMessage_RenderRequest = "renderrequest"
	WSMessage_BatchAck      = "batchack"
	WSMessage_BatchError    = "batcherror"
	WSMessage_CmdResp       = "cmdresp"
	WSMessage_Error         = "error"
)

type WSCommandType interface {
	GetWSCommand() string
	GetReqId() string
}

type ComponentWSCommand struct {
	Type        string `json:"type"`
	ReqId       string `json:"reqid,omitempty"`
	ComponentId int    `json:"componentid"`
}

func (cmd *ComponentWSCommand) GetWSCommand() string {
	return cmd.Type
}

func (cmd *ComponentWSCommand) GetReqId() string {
	return cmd.ReqId
}

// DispatchWSCommand fires a synthetic event at the node found by walking Path
// (child indexes) down from the component's root.
type DispatchWSCommand struct {
	Type        string `json:"type"`
	ReqId       string `json:"reqid,omitempty"`
	ComponentId int    `json:"componentid"`
	Path        []int  `json:"path"`
	Event       string `json:"event"`
	Key         string `json:"key,omitempty"`
}

func (cmd *DispatchWSCommand) GetWSCommand() string {
	return cmd.Type
}

func (cmd *DispatchWSCommand) GetReqId() string {
	return cmd.ReqId
}

func ParseWSCommandMap(cmdMap map[string]any) (WSCommandType, error) {
	cmdType, ok := cmdMap["type"].(string)
	if !ok {
		return nil, fmt.Errorf("no type field in command map")
	}
	switch cmdType {
	case WSCommand_AttachRoot, WSCommand_Detach, WSCommand_Reset:
		var cmd ComponentWSCommand
		err := utilfn.DoMapStructure(&cmd, cmdMap)
		if err != nil {
			return nil, fmt.Errorf("error decoding %s command: %w", cmdType, err)
		}
		return &cmd, nil
	case WSCommand_Dispatch:
		var cmd DispatchWSCommand
		err := utilfn.DoMapStructure(&cmd, cmdMap)
		if err != nil {
			return nil, fmt.Errorf("error decoding dispatch command: %w", err)
		}
		if cmd.Event == "" {
			return nil, fmt.Errorf("dispatch command requires an event")
		}
		return &cmd, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", cmdType)
	}
}

type HelloMessage struct {
	Type      string `json:"type"`
	ConnId    string `json:"connid"`
	SessionId string `json:"sessionid"`
}

// EventMessage carries the descriptor and payload as raw JSON so the producer
// sees exactly what the dispatcher serialized.
type EventMessage struct {
	Type       string          `json:"type"`
	Descriptor json.RawMessage `json:"descriptor"`
	Payload    json.RawMessage `json:"payload"`
}

type RenderRequestMessage struct {
	Type        string `json:"type"`
	ComponentId int    `json:"componentid"`
}

type BatchAckMessage struct {
	Type        string `json:"type"`
	ComponentId int    `json:"componentid"`
	Seq         int64  `json:"seq"`
}

type BatchErrorMessage struct {
	Type        string `json:"type"`
	ComponentId int    `json:"componentid"`
	Seq         int64  `json:"seq"`
	Code        string `json:"code,omitempty"`
	SubCode     string `json:"subcode,omitempty"`
	Fatal       bool   `json:"fatal,omitempty"`
	Error       string `json:"error"`
}

type CmdRespMessage struct {
	Type  string `json:"type"`
	ReqId string `json:"reqid,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func makeBatchMessage(result treeconsumer.BatchResult) any {
	if result.Err == nil {
		return BatchAckMessage{Type: WSMessage_BatchAck, ComponentId: result.ComponentId, Seq: result.Seq}
	}
	return BatchErrorMessage{
		Type:        WSMessage_BatchError,
		ComponentId: result.ComponentId,
		Seq:         result.Seq,
		Code:        result.Code,
		SubCode:     result.SubCode,
		Fatal:       result.Fatal,
		Error:       result.Err.Error(),
	}
}
