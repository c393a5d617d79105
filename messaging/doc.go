// Package messaging encrypts, decrypts and reconciles the delivery state of
// conversation messages.
//
// # Overview
//
// [Codec] turns a local [model.ClientMessage] into the ciphertext
// [model.Message] and [model.Delivery] pair exchanged with the relay, and back.
// [Coordinator] drives the delivery protocol on top of it:
//
//   - RequestDelivery sends every queued outgoing message, one deliveryRequest
//     per message. A failed request leaves the message queued for the next pass.
//   - UpdateOutgoingDelivery applies relay state to a sent message and
//     acknowledges deliveries that reached the delivered state.
//   - UpdateIncomingDelivery stores, decrypts and confirms a received message.
//
// # Keys
//
// Peer messages use a fresh AES-256 key per message, wrapped with RSA-OAEP for
// the recipient's current public key. Group messages use the group key XORed
// with a random per-message salt that travels in clear next to the
// ciphertext. Attachments get their own content key, carried inside the
// encrypted attachment descriptor and later used by the transfer engine.
//
// A message that cannot be decrypted is kept with its text replaced by
// [model.UnreadableText] and Unreadable set; its attachment is not registered.
//
// # Listeners
//
// Message listeners receive every stored change with a flag telling new
// messages from updates. Unseen listeners receive the full unseen set after
// each change to it.
package messaging
