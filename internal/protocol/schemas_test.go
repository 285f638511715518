package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeWanted_Valid(t *testing.T) {
	raw := []byte(`{
	  "objectIds":[1234,5],
	  "itemIds":[],
	  "npcIds":[3],
	  "unsureObjectIds":[],
	  "unsureItemIds":[7],
	  "unsureNpcIds":[],
	  "allowedItemIds":[111]
	}`)
	m, err := DecodeWanted(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(m.ObjectIDs) != 2 || m.ObjectIDs[0] != 1234 {
		t.Fatalf("objectIds=%v", m.ObjectIDs)
	}
	if len(m.AllowedItemIDs) != 1 || m.AllowedItemIDs[0] != 111 {
		t.Fatalf("allowedItemIds=%v", m.AllowedItemIDs)
	}
}

func TestDecodeWanted_Rejects(t *testing.T) {
	cases := map[string]string{
		"null":           `null`,
		"missing field":  `{"objectIds":[],"itemIds":[],"npcIds":[],"unsureObjectIds":[],"unsureItemIds":[],"unsureNpcIds":[]}`,
		"negative id":    `{"objectIds":[-1],"itemIds":[],"npcIds":[],"unsureObjectIds":[],"unsureItemIds":[],"unsureNpcIds":[],"allowedItemIds":[]}`,
		"string id":      `{"objectIds":["a"],"itemIds":[],"npcIds":[],"unsureObjectIds":[],"unsureItemIds":[],"unsureNpcIds":[],"allowedItemIds":[]}`,
		"not an object":  `[1,2,3]`,
		"not even json":  `<html>`,
		"null id array":  `{"objectIds":null,"itemIds":[],"npcIds":[],"unsureObjectIds":[],"unsureItemIds":[],"unsureNpcIds":[],"allowedItemIds":[]}`,
	}
	for name, raw := range cases {
		if _, err := DecodeWanted([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := DecodeWanted([]byte(`null`)); !errors.Is(err, ErrNullPayload) {
		t.Fatalf("null: err=%v want ErrNullPayload", err)
	}
}

func TestDecodeSubmitAck(t *testing.T) {
	ack, err := DecodeSubmitAck([]byte(`{"message":"Thanks! 12 left."}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Message != "Thanks! 12 left." {
		t.Fatalf("message=%q", ack.Message)
	}
	if _, err := DecodeSubmitAck([]byte(`{"msg":"x"}`)); err == nil {
		t.Fatalf("expected missing message rejected")
	}
}

func TestSubmissionMsg_MatchesSchema(t *testing.T) {
	b, err := json.Marshal(SubmissionMsg{
		Type:         "object",
		FirstItem:    995,
		ID:           1234,
		MenuTarget:   "Use Coins -> Bank booth",
		Interactable: true,
		Username:     "zezima",
		SawNIH:       true,
		Version:      SubmitVersion,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := Validate(SchemaSubmission, b); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := Validate(SchemaSubmission, []byte(`{"type":"tree"}`)); err == nil {
		t.Fatalf("expected bad submission rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	b, _ := json.Marshal(NewNotice("hi"))
	base, err := DecodeBase(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if base.Type != TypeNotice || base.ProtocolVersion != Version {
		t.Fatalf("base=%+v", base)
	}
}
