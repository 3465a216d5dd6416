// Package bootloader talks to a device running the Cypress/Infineon PSoC
// bootloader and flashes .cyacd firmware images onto it.
//
// Session is the low level: one typed method per bootloader command, over
// any transport.Transport. Host sits on top and drives a full bootload run
// as an explicit step-by-step sequence - enter, verify row ranges, check
// metadata, write rows, verify checksum, exit - so callers can interleave
// their own policy (downgrade prompts, dual-application slot selection)
// between the steps.
package bootloader
