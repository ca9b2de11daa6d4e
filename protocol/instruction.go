package protocol

import (
	"encoding/json"
	"strconv"
)

// Instruction is the outbound AGV payload.
type Instruction struct {
	MaterialNeeded int               `json:"mat_p"`
	Messages       map[string]string `json:"mant"`
	Command        *string           `json:"cmd,omitempty"`
	Order          *string           `json:"of,omitempty"`
}

// NewInstruction builds an instruction keyed by 1-based post index.
func NewInstruction(materialNeeded bool, messages map[int]string) Instruction {
	ins := Instruction{Messages: make(map[string]string, len(messages))}
	if materialNeeded {
		ins.MaterialNeeded = 1
	}
	for idx, msg := range messages {
		ins.Messages[strconv.Itoa(idx)] = msg
	}
	return ins
}

func (i Instruction) WithCommand(cmd string) Instruction {
	i.Command = &cmd
	return i
}

func (i Instruction) WithOrder(of string) Instruction {
	i.Order = &of
	return i
}

// Encode renders ins as one JSON line terminated by newline.
func Encode(ins Instruction, newline string) ([]byte, error) {
	if ins.Messages == nil {
		ins.Messages = map[string]string{}
	}
	data, err := json.Marshal(ins)
	if err != nil {
		return nil, err
	}
	return append(data, newline...), nil
}
