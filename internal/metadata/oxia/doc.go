// Package oxia implements the relay's MetadataStore using Oxia.
//
//	store, err := oxia.New(ctx, oxia.DefaultConfig("localhost:6648", "default"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// A Store holds a single Oxia client session. Every ephemeral key written
// through it (node registrations and origin records) is deleted by Oxia
// when the session ends, so a relay that crashes disappears from its
// peers after SessionTimeout.
//
// Oxia notifications do not carry values. Created and modified keys are
// reported with their new version; readers Get the key if they need the
// value.
package oxia
