package service

const jsonOnly = "Respond with a single JSON object and nothing else."

const classificationSystemPrompt = `You route citizen grievances in Maharashtra, India to the responsible government department.
Return keys: urgency (low|medium|high|urgent), category (infrastructure|utilities|sanitation|transport|health|education|safety|environment|governance|other),
department (a key from the department list), department_name, location {country,state,district,city,pincode,address},
jurisdiction, reasoning, confidence (0..1), emergency_detected (bool), key_details (array of strings).
Fire, medical emergencies, accidents, gas leaks, collapses and crimes in progress are always urgent. ` + jsonOnly

const understandingSystemPrompt = `Read a citizen grievance and extract what it is about.
Return keys: urgency (low|medium|high|urgent), category (infrastructure|utilities|sanitation|transport|health|education|safety|environment|governance|other),
location {city,district,state,address}. ` + jsonOnly

const routingSystemPrompt = `Pick the single government department responsible for a grievance.
Return keys: department (a key from the list), reasoning. ` + jsonOnly

const sentimentSystemPrompt = `Assess the emotional state of a citizen writing a grievance.
Return keys: sentiment_score (-1..1), emotion_level (calm|concerned|frustrated|angry|urgent), urgency_boost (0..1),
priority_recommendation (normal|high|urgent), detected_emotions (array), indicators (array), reasoning. ` + jsonOnly

const slaSystemPrompt = `Assign a resolution deadline in hours for a classified grievance.
Emergencies are measured in minutes (0.25 = 15 minutes). Routine issues take days.
Return keys: sla_hours (number, decimals allowed), reasoning. ` + jsonOnly

const policySystemPrompt = `Map a grievance to the Maharashtra statutes, circulars and charters that govern it.
Use only the knowledge base supplied. Return keys: applicable_policies (array of {name, reference, description}),
legal_sla {hours, basis}, policy_violation (bool), suggested_action, policy_reference,
escalation_strategy (array of {level, authority, after_hours}), escalation_authority, reasoning. ` + jsonOnly

const escalationSystemPrompt = `Decide whether an overdue grievance should be escalated.
Hierarchy: level_1 department head, level_2 commissioner, level_3 chief secretary or minister, level_4 chief minister or governor office.
Return keys: escalation_needed (bool), escalation_level (none|level_1|level_2|level_3|level_4), escalated_to, reason. ` + jsonOnly

const followUpSystemPrompt = `Draft a follow-up for a grievance that has been in progress without an update.
Return keys: action_type (email|api_call), action_details {subject, body}, citizen_message, priority (normal|high|urgent). ` + jsonOnly

const citizenMessageSystemPrompt = `Write a short, plain update to the citizen who filed a grievance.
Be factual and courteous, name the department or authority involved, and never promise a date that is not given.
Return keys: subject, message. ` + jsonOnly
