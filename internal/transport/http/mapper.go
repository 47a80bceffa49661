package http

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/educhat/internal/core"
	"github.com/vovakirdan/educhat/internal/proto"
)

var errUnknownType = errors.New("unknown message type")

func inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom:
		var data proto.RoomData
		if err := inbound.DecodeData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", inbound.Type, err)
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeaveRoom {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Room: data.Room}, nil
	case proto.InboundTypeTyping, proto.InboundTypeStopTyping:
		var data proto.TypingData
		if err := inbound.DecodeData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", inbound.Type, err)
		}
		kind := core.CommandTyping
		if inbound.Type == proto.InboundTypeStopTyping {
			kind = core.CommandStopTyping
		}
		return &core.Command{Kind: kind, Room: data.Room, DisplayName: data.DisplayName}, nil
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := inbound.DecodeData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", inbound.Type, err)
		}
		return &core.Command{
			Kind:        core.CommandSendMessage,
			Room:        data.Room,
			Text:        data.Text,
			ClientID:    data.ClientID,
			DisplayName: data.DisplayName,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownType, inbound.Type)
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}

	switch event.Kind {
	case core.EventJoinedRoom:
		out.Data = proto.EventJoinedRoomData{Room: event.Room}
	case core.EventRoomMessages:
		messages := make([]proto.Message, 0, len(event.Messages))
		for i := range event.Messages {
			messages = append(messages, messageToProto(&event.Messages[i]))
		}
		out.Data = proto.EventRoomMessagesData{Room: event.Room, Messages: messages}
	case core.EventNewMessage:
		if event.Message != nil {
			out.Data = messageToProto(event.Message)
		}
	case core.EventTyping, core.EventStopTyping:
		if event.Typing != nil {
			out.Data = proto.EventTypingData{
				Room:        event.Room,
				UID:         event.Typing.UID,
				DisplayName: event.Typing.DisplayName,
			}
		}
	}
	return out
}

func messageToProto(m *core.Message) proto.Message {
	return proto.Message{
		ID:         m.ID,
		Room:       m.Room,
		UID:        m.UID,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
		ClientID:   m.ClientID,
	}
}

func errorFrame(code, msg string) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: code, Msg: msg}}
}
